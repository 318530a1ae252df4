package domain

// Button is one inline keyboard button. Exactly one of Action or URL is set.
type Button struct {
	Label  string
	Action string
	URL    string
}

// Keyboard is a grid of inline buttons.
type Keyboard [][]Button

// CallbackButton builds a button that sends action back to the bot.
func CallbackButton(label, action string) Button {
	return Button{Label: label, Action: action}
}

// URLButton builds a button that opens url.
func URLButton(label, url string) Button {
	return Button{Label: label, URL: url}
}

// Row is a convenience for building keyboard rows.
func Row(buttons ...Button) []Button {
	return buttons
}

// Callback tags carried by inline buttons.
const (
	TagCheckSubscription = "check_subscription"
	TagUnderstood        = "understood"
	TagNeedHelp          = "need_help"
	TagCalculateCost     = "calculate_cost"
	TagReviews           = "reviews"
	TagWhatIsPoizon      = "what_is_poizon"
	TagCallOperator      = "call_operator"
	TagMyOrders          = "my_orders"
	TagMainMenu          = "main_menu"
	TagCancel            = "cancel"
	TagRecalculate       = "recalculate"
	TagOrderStandard     = "order_standard"
	TagOrderExpress      = "order_express"
	TagCategoryPrefix    = "category_"
	TagSizePrefix        = "size_"
)
