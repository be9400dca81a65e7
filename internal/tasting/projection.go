package tasting

// WhiskeyView is a whiskey as one viewer may see it. Identity fields are
// empty for participants until the session is revealed.
type WhiskeyView struct {
	ID            string  `json:"id"`
	DisplayNumber int     `json:"displayNumber"`
	PourSize      string  `json:"pourSize"`
	Redacted      bool    `json:"redacted"`
	Name          string  `json:"name,omitempty"`
	Distillery    string  `json:"distillery,omitempty"`
	Region        string  `json:"region,omitempty"`
	Age           int     `json:"age,omitempty"`
	Proof         float64 `json:"proof,omitempty"`
	Cask          string  `json:"cask,omitempty"`
	Notes         string  `json:"notes,omitempty"`
}

func (w Whiskey) View(full bool) WhiskeyView {
	v := WhiskeyView{
		ID:            w.ID,
		DisplayNumber: w.DisplayNumber,
		PourSize:      w.PourSize,
		Redacted:      !full,
	}
	if full {
		v.Name = w.Name
		v.Distillery = w.Distillery
		v.Region = w.Region
		v.Age = w.Age
		v.Proof = w.Proof
		v.Cask = w.Cask
		v.Notes = w.Notes
	}
	return v
}

// WhiskeyViews projects the lineup for a viewer. Moderators always see
// identities, everyone sees them from reveal on.
func (s *Session) WhiskeyViews(moderator bool) []WhiskeyView {
	full := moderator || s.Status.Revealed()
	out := make([]WhiskeyView, 0, len(s.Whiskeys))
	for _, w := range s.Whiskeys {
		out = append(out, w.View(full))
	}
	return out
}

// ParticipantView omits the user id of other participants.
type ParticipantView struct {
	ID                  string            `json:"id"`
	DisplayName         string            `json:"displayName"`
	Status              ParticipantStatus `json:"status"`
	IsReady             bool              `json:"isReady"`
	CurrentWhiskeyIndex int               `json:"currentWhiskeyIndex"`
	Present             bool              `json:"present"`
}

func (p Participant) View() ParticipantView {
	return ParticipantView{
		ID:                  p.ID,
		DisplayName:         p.DisplayName,
		Status:              p.Status,
		IsReady:             p.IsReady,
		CurrentWhiskeyIndex: p.CurrentWhiskeyIndex,
		Present:             p.Present(),
	}
}

func ParticipantViews(ps []Participant) []ParticipantView {
	out := make([]ParticipantView, 0, len(ps))
	for _, p := range ps {
		out = append(out, p.View())
	}
	return out
}
