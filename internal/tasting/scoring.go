package tasting

import (
	"sort"

	"github.com/shopspring/decimal"
)

const (
	MinRating = 1
	MaxRating = 10
)

var (
	weightNose    = decimal.RequireFromString("0.25")
	weightPalate  = decimal.RequireFromString("0.35")
	weightFinish  = decimal.RequireFromString("0.25")
	weightOverall = decimal.RequireFromString("0.15")
)

// Categories holds one value per rating category.
type Categories struct {
	Nose    float64 `json:"nose"`
	Palate  float64 `json:"palate"`
	Finish  float64 `json:"finish"`
	Overall float64 `json:"overall"`
}

// CategoryWins marks the categories in which a whiskey holds the single
// highest average of the session.
type CategoryWins struct {
	Nose    bool `json:"nose"`
	Palate  bool `json:"palate"`
	Finish  bool `json:"finish"`
	Overall bool `json:"overall"`
}

type Ranking struct {
	Rank          int          `json:"rank"`
	WhiskeyID     string       `json:"whiskeyId"`
	DisplayNumber int          `json:"displayNumber"`
	AverageScore  float64      `json:"averageScore"`
	Categories    Categories   `json:"categoryAverages"`
	CategoryWins  CategoryWins `json:"categoryWins"`
	ScoreCount    int          `json:"scoreCount"`
}

func validRating(v int) bool { return v >= MinRating && v <= MaxRating }

// TotalScore is the weighted total rounded half-up to one decimal place.
func TotalScore(nose, palate, finish, overall int) float64 {
	sum := decimal.NewFromInt(int64(nose)).Mul(weightNose).
		Add(decimal.NewFromInt(int64(palate)).Mul(weightPalate)).
		Add(decimal.NewFromInt(int64(finish)).Mul(weightFinish)).
		Add(decimal.NewFromInt(int64(overall)).Mul(weightOverall))
	return sum.Round(1).InexactFloat64()
}

// AverageScore is the mean total of scores, 0 when empty.
func AverageScore(scores []Score) float64 {
	if len(scores) == 0 {
		return 0
	}
	sum := decimal.Zero
	for _, s := range scores {
		sum = sum.Add(decimal.NewFromFloat(s.TotalScore))
	}
	return mean(sum, len(scores))
}

// CategoryAverages is the per-category mean of scores, all zero when empty.
func CategoryAverages(scores []Score) Categories {
	if len(scores) == 0 {
		return Categories{}
	}
	var nose, palate, finish, overall int64
	for _, s := range scores {
		nose += int64(s.Nose)
		palate += int64(s.Palate)
		finish += int64(s.Finish)
		overall += int64(s.Overall)
	}
	n := len(scores)
	return Categories{
		Nose:    mean(decimal.NewFromInt(nose), n),
		Palate:  mean(decimal.NewFromInt(palate), n),
		Finish:  mean(decimal.NewFromInt(finish), n),
		Overall: mean(decimal.NewFromInt(overall), n),
	}
}

func mean(sum decimal.Decimal, n int) float64 {
	return sum.Div(decimal.NewFromInt(int64(n))).Round(1).InexactFloat64()
}

// Rank orders whiskeys by average score, highest first. Ties fall back to
// the category averages in nose, palate, finish, overall order, then to the
// lower display number.
func Rank(whiskeys []Whiskey, scores []Score) []Ranking {
	byWhiskey := make(map[string][]Score, len(whiskeys))
	for _, s := range scores {
		byWhiskey[s.WhiskeyID] = append(byWhiskey[s.WhiskeyID], s)
	}

	out := make([]Ranking, 0, len(whiskeys))
	for _, w := range whiskeys {
		ws := byWhiskey[w.ID]
		out = append(out, Ranking{
			WhiskeyID:     w.ID,
			DisplayNumber: w.DisplayNumber,
			AverageScore:  AverageScore(ws),
			Categories:    CategoryAverages(ws),
			ScoreCount:    len(ws),
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		for _, pair := range [][2]float64{
			{a.AverageScore, b.AverageScore},
			{a.Categories.Nose, b.Categories.Nose},
			{a.Categories.Palate, b.Categories.Palate},
			{a.Categories.Finish, b.Categories.Finish},
			{a.Categories.Overall, b.Categories.Overall},
		} {
			if pair[0] != pair[1] {
				return pair[0] > pair[1]
			}
		}
		return a.DisplayNumber < b.DisplayNumber
	})

	for i := range out {
		out[i].Rank = i + 1
	}
	assignCategoryWins(out)
	return out
}

func assignCategoryWins(rs []Ranking) {
	pick := []struct {
		value func(Categories) float64
		mark  func(*CategoryWins)
	}{
		{func(c Categories) float64 { return c.Nose }, func(w *CategoryWins) { w.Nose = true }},
		{func(c Categories) float64 { return c.Palate }, func(w *CategoryWins) { w.Palate = true }},
		{func(c Categories) float64 { return c.Finish }, func(w *CategoryWins) { w.Finish = true }},
		{func(c Categories) float64 { return c.Overall }, func(w *CategoryWins) { w.Overall = true }},
	}
	for _, p := range pick {
		best, count := -1, 0
		for i, r := range rs {
			if r.ScoreCount == 0 {
				continue
			}
			switch {
			case best < 0 || p.value(r.Categories) > p.value(rs[best].Categories):
				best, count = i, 1
			case p.value(r.Categories) == p.value(rs[best].Categories):
				count++
			}
		}
		if best >= 0 && count == 1 {
			p.mark(&rs[best].CategoryWins)
		}
	}
}
