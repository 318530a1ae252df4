package domain

// CategoryCount is the number of calculations for a category.
type CategoryCount struct {
	Category Category `json:"category"`
	Count    int      `json:"count"`
}

// Stats is the aggregated usage report shown to admins.
type Stats struct {
	TotalUsers        int             `json:"totalUsers"`
	ActiveUsers       int             `json:"activeUsers"`
	NewUsersToday     int             `json:"newUsersToday"`
	TotalCalculations int             `json:"totalCalculations"`
	TodayCalculations int             `json:"todayCalculations"`
	TotalOrders       int             `json:"totalOrders"`
	PendingOrders     int             `json:"pendingOrders"`
	CompletedOrders   int             `json:"completedOrders"`
	TodayAPIRequests  int             `json:"todayApiRequests"`
	TodayAPIUsers     int             `json:"todayApiUsers"`
	PopularCategories []CategoryCount `json:"popularCategories"`
}
