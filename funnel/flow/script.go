package flow

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/m3rciful/funnelbot/funnel/access"
	"github.com/m3rciful/funnelbot/funnel/state"
)

// Button is a scene button: Action for a callback, URL for a link.
type Button struct {
	Text   string `yaml:"text"`
	Action string `yaml:"action,omitempty"`
	URL    string `yaml:"url,omitempty"`
}

// Scene is what the bot does in reply to one action.
type Scene struct {
	ClearControls bool       `yaml:"clear_controls,omitempty"`
	Media         string     `yaml:"media,omitempty"`
	Step          state.Step `yaml:"step,omitempty"`
	Text          string     `yaml:"text,omitempty"`
	Buttons       [][]Button `yaml:"buttons,omitempty"`
	// CheckMembership renders NotMember instead when the user is not in the channel.
	CheckMembership bool   `yaml:"check_membership,omitempty"`
	NotMember       *Scene `yaml:"not_member,omitempty"`
}

// Texts is the fixed copy used outside scenes.
type Texts struct {
	InvalidEmail    string `yaml:"invalid_email"`
	FreeThanks      string `yaml:"free_thanks"`
	FreeTicketTitle string `yaml:"free_ticket_title"`
	PaidTicketTitle string `yaml:"paid_ticket_title"`
	NoEmail         string `yaml:"no_email"`
	PayPrompt       string `yaml:"pay_prompt"`
	PayButton       string `yaml:"pay_button"`
	GatewayError    string `yaml:"gateway_error"`
	PaymentsOff     string `yaml:"payments_off"`
	AlreadyDone     string `yaml:"already_done"`
	Reminder        string `yaml:"reminder"`
	MyID            string `yaml:"my_id"`
	OverrideDone    string `yaml:"override_done"`
	OverrideDenied  string `yaml:"override_denied"`
	PaidUsage       string `yaml:"paid_usage"`
	BroadcastUsage  string `yaml:"broadcast_usage"`
	BroadcastDone   string `yaml:"broadcast_done"`
	RateLimited     string `yaml:"rate_limited"`
	UnknownAction   string `yaml:"unknown_action"`
}

// Script is the whole conversation: entry scene, action scenes, the paid
// content hand-off and fixed copy.
type Script struct {
	Start    Scene            `yaml:"start"`
	Actions  map[string]Scene `yaml:"actions"`
	Grant    Scene            `yaml:"grant"`
	Texts    Texts            `yaml:"texts"`
	Operator access.Texts     `yaml:"operator"`
}

// LoadScript reads a YAML script over the built-in one; keys missing from the
// file keep their defaults. An empty path returns the default script.
// Placeholders like {channel_link} are replaced from vars.
func LoadScript(path string, vars map[string]string) (*Script, error) {
	s := DefaultScript()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read funnel script: %w", err)
		}
		if err := yaml.Unmarshal(data, s); err != nil {
			return nil, fmt.Errorf("parse funnel script: %w", err)
		}
	}
	s.expand(vars)
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Validate checks that buttons point to known actions and steps are known.
func (s *Script) Validate() error {
	var errs []error
	check := func(where string, sc *Scene) {
		if sc.Step != "" && !sc.Step.Valid() {
			errs = append(errs, fmt.Errorf("%s: unknown step %q", where, sc.Step))
		}
		for _, row := range sc.Buttons {
			for _, b := range row {
				switch {
				case b.Text == "":
					errs = append(errs, fmt.Errorf("%s: button without text", where))
				case b.Action == "" && b.URL == "":
					errs = append(errs, fmt.Errorf("%s: button %q has neither action nor url", where, b.Text))
				case b.Action != "":
					if _, ok := s.Actions[b.Action]; !ok {
						errs = append(errs, fmt.Errorf("%s: button %q points to unknown action %q", where, b.Text, b.Action))
					}
				}
			}
		}
	}
	check("start", &s.Start)
	check("grant", &s.Grant)
	for _, name := range s.ActionNames() {
		sc := s.Actions[name]
		if name == access.GrantAction {
			errs = append(errs, fmt.Errorf("action %q is reserved", name))
		}
		check("actions."+name, &sc)
		if sc.NotMember != nil {
			check("actions."+name+".not_member", sc.NotMember)
		}
	}
	return errors.Join(errs...)
}

// ActionNames returns the sorted action keys.
func (s *Script) ActionNames() []string {
	names := make([]string, 0, len(s.Actions))
	for k := range s.Actions {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

func (s *Script) expand(vars map[string]string) {
	if len(vars) == 0 {
		return
	}
	pairs := make([]string, 0, len(vars)*2)
	for k, v := range vars {
		pairs = append(pairs, "{"+k+"}", v)
	}
	r := strings.NewReplacer(pairs...)

	var scene func(sc *Scene)
	scene = func(sc *Scene) {
		sc.Text = r.Replace(sc.Text)
		for i := range sc.Buttons {
			for j := range sc.Buttons[i] {
				sc.Buttons[i][j].Text = r.Replace(sc.Buttons[i][j].Text)
				sc.Buttons[i][j].URL = r.Replace(sc.Buttons[i][j].URL)
			}
		}
		if sc.NotMember != nil {
			scene(sc.NotMember)
		}
	}
	scene(&s.Start)
	scene(&s.Grant)
	for k, sc := range s.Actions {
		scene(&sc)
		s.Actions[k] = sc
	}
	s.Texts.Reminder = r.Replace(s.Texts.Reminder)
	s.Texts.GatewayError = r.Replace(s.Texts.GatewayError)
	s.Texts.AlreadyDone = r.Replace(s.Texts.AlreadyDone)
	s.Texts.PaymentsOff = r.Replace(s.Texts.PaymentsOff)
}
