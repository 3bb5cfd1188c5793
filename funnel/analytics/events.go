package analytics

// BotStart is sent on /start.
func BotStart(firstName, lastName string) Event {
	return Event{Name: "bot_start", Params: map[string]any{
		"user_first_name": firstName,
		"user_last_name":  lastName,
	}}
}

// FunnelStep marks progress through the funnel.
func FunnelStep(step string) Event {
	return Event{Name: "funnel_step", Params: map[string]any{"step_name": step}}
}

// ButtonClick records a pressed inline button.
func ButtonClick(data string) Event {
	return Event{Name: "button_click", Params: map[string]any{"button_data": data}}
}

// ChannelSubscribed records a confirmed channel membership.
func ChannelSubscribed(channel string) Event {
	return Event{Name: "channel_subscribed", Params: map[string]any{"channel": channel}}
}

// PaymentInitiated is sent when a payment link is requested.
func PaymentInitiated(currency string, value float64) Event {
	return Event{Name: "payment_initiated", Params: map[string]any{
		"currency": currency,
		"value":    value,
	}}
}

// Item describes the purchased product.
type Item struct {
	ID   string
	Name string
}

// Purchase is sent once per fulfilled payment.
func Purchase(currency string, value float64, transactionID string, item Item) Event {
	return Event{Name: "purchase", Params: map[string]any{
		"currency":       currency,
		"value":          value,
		"transaction_id": transactionID,
		"items": []map[string]any{{
			"item_id":   item.ID,
			"item_name": item.Name,
			"price":     value,
			"quantity":  1,
		}},
	}}
}

// CourseAccessGranted follows a successful purchase.
func CourseAccessGranted(courseID string) Event {
	return Event{Name: "course_access_granted", Params: map[string]any{"course_id": courseID}}
}

// ContactShared records a shared contact card.
func ContactShared(phoneProvided bool) Event {
	return Event{Name: "contact_shared", Params: map[string]any{"phone_provided": phoneProvided}}
}

// UserDropped records the last step of a user who left.
func UserDropped(lastStep string) Event {
	return Event{Name: "user_dropped", Params: map[string]any{"last_step": lastStep}}
}
