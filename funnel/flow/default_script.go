package flow

import (
	"github.com/m3rciful/funnelbot/funnel/access"
	"github.com/m3rciful/funnelbot/funnel/state"
)

// Action keys of the built-in script.
const (
	ActionMarathonStart       = "marathon_start"
	ActionMarathonDescription = "marathon_description"
	ActionMarathonParticipate = "marathon_participate"
	ActionMarathonDone        = "marathon_done"
	ActionContinueYes         = "continue_yes"
	ActionContinueNo          = "continue_no"
	ActionTakeCourse          = "take_course"
	ActionCheckSubscription   = "check_subscription"
)

const emailPrompt = "Reply with your email, it is needed to grant you access to the marathon."

// DefaultScript returns the built-in marathon and course funnel.
func DefaultScript() *Script {
	return &Script{
		Start: Scene{
			Text: "Hi! Choose what suits you:",
			Buttons: [][]Button{
				{{Text: "Take the marathon", Action: ActionMarathonStart}},
				{{Text: "I have already taken the marathon", Action: ActionMarathonDone}},
			},
		},
		Actions: map[string]Scene{
			ActionMarathonStart: {
				ClearControls: true,
				Media:         "intro.mp4",
				Text:          "Press the button below:",
				Buttons:       [][]Button{{{Text: "Marathon description", Action: ActionMarathonDescription}}},
			},
			ActionMarathonDescription: {
				ClearControls: true,
				Text: "Marathon lesson 1. My things\n" +
					"The first lesson has 5 blocks\n" +
					"New words\n" +
					"Actions\n" +
					"Singular and plural\n" +
					"This/That pronouns\n" +
					"Possessive pronouns\n\n" +
					"During the marathon you will:\n" +
					"- learn to talk about \"My things\"\n" +
					"- memorize 50 words\n" +
					"- learn to understand spoken English\n" +
					"- forget about cramming\n" +
					"- pick up two grammar topics without noticing.",
				Buttons: [][]Button{{{Text: "I'm in", Action: ActionMarathonParticipate}}},
			},
			ActionMarathonParticipate: {
				ClearControls: true,
				Media:         "marathon_goodluck.mp4",
				Step:          state.StepAwaitingFreeEmail,
				Text:          emailPrompt,
			},
			ActionMarathonDone: {
				ClearControls: true,
				Media:         "praise.mp4",
				Text:          "Want to keep learning?",
				Buttons: [][]Button{
					{{Text: "Yes", Action: ActionContinueYes}},
					{{Text: "No", Action: ActionContinueNo}},
				},
			},
			ActionContinueYes: {
				ClearControls: true,
				Text: "Topic: Work\n\n" +
					"5 blocks\n\n" +
					"- Professions\n" +
					"- Workplaces\n" +
					"- Tools of the trade\n" +
					"- Degrees of comparison\n\n" +
					"You will learn 50 words, read longer texts, understand conversations about work and start speaking.",
				Buttons: [][]Button{{{Text: "I'll take it", Action: ActionTakeCourse}}},
			},
			ActionContinueNo: {
				ClearControls: true,
				Text:          "Stay with us in the channel, learn something new every day and keep studying English.",
				Buttons: [][]Button{
					{{Text: "Go to channel", URL: "{channel_link}"}},
					{{Text: "I have subscribed", Action: ActionCheckSubscription}},
				},
			},
			ActionCheckSubscription: {
				CheckMembership: true,
				Text:            "Thanks for subscribing! See you in the channel.",
				NotMember: &Scene{
					Text: "It looks like you are not subscribed yet.",
					Buttons: [][]Button{
						{{Text: "Go to channel", URL: "{channel_link}"}},
						{{Text: "Check again", Action: ActionCheckSubscription}},
					},
				},
			},
			ActionTakeCourse: {
				Step: state.StepAwaitingPaidEmail,
				Text: emailPrompt,
			},
		},
		Grant: Scene{
			Media: "course_goodluck.mp4",
			Text:  "Thank you! Access will arrive in this bot shortly, please wait.",
		},
		Texts: Texts{
			InvalidEmail:    "The email looks invalid, please send your email in a separate message.",
			FreeThanks:      "Thank you! Access will arrive in this bot shortly, please wait.",
			FreeTicketTitle: "New request: free marathon",
			PaidTicketTitle: "New request: paid marathon (payment succeeded)",
			NoEmail:         "email not provided",
			PayPrompt:       "Follow the link below to pay:",
			PayButton:       "Pay",
			GatewayError:    "Could not create the payment, please send your email again a bit later. Support: {support}",
			PaymentsOff:     "Payments are not available right now. Support: {support}",
			AlreadyDone:     "You have already passed this step.",
			Reminder:        "Your course is still waiting for you. Payment link:",
			MyID:            "Your Telegram ID: %d. User: %s",
			OverrideDone:    "Access granted to user %d",
			OverrideDenied:  "You do not have administrator rights",
			PaidUsage:       "Usage: /paid <user id>",
			BroadcastUsage:  "Usage: /broadcast <text>",
			BroadcastDone:   "Broadcast queued for %d recipients.",
			RateLimited:     "Too many requests, slow down a little.",
			UnknownAction:   "This button is no longer active.",
		},
		Operator: access.DefaultTexts(),
	}
}
