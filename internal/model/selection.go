package model

// Selection is the target set shields apply to. The tokens are opaque to
// the gate logic; they come from the editing surface and are handed to the
// blocking capability untouched.
type Selection struct {
	Apps       []string `yaml:"apps" json:"apps"`
	Categories []string `yaml:"categories" json:"categories"`
	WebDomains []string `yaml:"web_domains" json:"web_domains"`
}

func (s Selection) Empty() bool {
	return len(s.Apps) == 0 && len(s.Categories) == 0 && len(s.WebDomains) == 0
}

// Clone returns a copy that shares no slice storage with the receiver.
func (s Selection) Clone() Selection {
	out := Selection{}
	if s.Apps != nil {
		out.Apps = append([]string{}, s.Apps...)
	}
	if s.Categories != nil {
		out.Categories = append([]string{}, s.Categories...)
	}
	if s.WebDomains != nil {
		out.WebDomains = append([]string{}, s.WebDomains...)
	}
	return out
}

// Count returns the total number of selected targets.
func (s Selection) Count() int {
	return len(s.Apps) + len(s.Categories) + len(s.WebDomains)
}
