package access

// Texts is the operator-facing copy of the grant dialogue.
type Texts struct {
	GrantButton     string `yaml:"grant_button"`
	OperatorOnly    string `yaml:"operator_only"`
	NotFound        string `yaml:"not_found"`
	AlreadyIssued   string `yaml:"already_issued"`
	AskPassword     string `yaml:"ask_password"`
	AskLink         string `yaml:"ask_link"`
	Granted         string `yaml:"granted"`
	DeliveryFailed  string `yaml:"delivery_failed"`
	UserCredentials string `yaml:"user_credentials"`
	UserChat        string `yaml:"user_chat"`
	ChannelButton   string `yaml:"channel_button"`
}

// DefaultTexts returns the built-in copy.
func DefaultTexts() Texts {
	return Texts{
		GrantButton:     "Grant access",
		OperatorOnly:    "This button is available to administrators only.",
		NotFound:        "Request not found.",
		AlreadyIssued:   "Access for this request has already been granted.",
		AskPassword:     "Send the password in a separate message.",
		AskLink:         "Now send the course link in a separate message.",
		Granted:         "Access granted to user %d.",
		DeliveryFailed:  "Could not deliver access to user %d, try again.",
		UserCredentials: "You have been granted access to the marathon!\nLogin: %s\nPassword: %s\nMarathon link: %s",
		UserChat:        "Marathon chat:",
		ChannelButton:   "Go to channel",
	}
}

func (t Texts) withDefaults() Texts {
	d := DefaultTexts()
	fill := func(dst *string, def string) {
		if *dst == "" {
			*dst = def
		}
	}
	fill(&t.GrantButton, d.GrantButton)
	fill(&t.OperatorOnly, d.OperatorOnly)
	fill(&t.NotFound, d.NotFound)
	fill(&t.AlreadyIssued, d.AlreadyIssued)
	fill(&t.AskPassword, d.AskPassword)
	fill(&t.AskLink, d.AskLink)
	fill(&t.Granted, d.Granted)
	fill(&t.DeliveryFailed, d.DeliveryFailed)
	fill(&t.UserCredentials, d.UserCredentials)
	fill(&t.UserChat, d.UserChat)
	fill(&t.ChannelButton, d.ChannelButton)
	return t
}
