package localstore

import "github.com/atinyakov/GophSpend/internal/models"

// sampleUsers and sampleExpenses populate an empty store on first start.
var sampleUsers = []models.User{
	{ID: "1", Name: "John Doe", Email: "john.doe@example.com", Phone: "+1 (555) 123-4567"},
	{ID: "2", Name: "Jane Smith", Email: "jane.smith@example.com", Phone: "+1 (555) 987-6543"},
}

var sampleExpenses = []models.Expense{
	{
		ID: "1", Title: "Grocery Shopping", Description: "Weekly groceries from Whole Foods",
		Amount: 85.42, Category: "Food & Dining", UserID: "1", UserName: "John Doe",
		Date: "2023-06-15", Time: "14:30", CreatedAt: "2023-06-15T14:30:00",
	},
	{
		ID: "2", Title: "Uber Ride", Description: "Ride to airport",
		Amount: 24.99, Category: "Transportation", UserID: "2", UserName: "Jane Smith",
		Date: "2023-06-14", Time: "09:15", CreatedAt: "2023-06-14T09:15:00",
	},
	{
		ID: "3", Title: "Movie Tickets", Description: "Tickets for new Marvel movie",
		Amount: 32.5, Category: "Entertainment", UserID: "1", UserName: "John Doe",
		Date: "2023-06-12", Time: "19:45", CreatedAt: "2023-06-12T19:45:00",
	},
	{
		ID: "4", Title: "Electricity Bill", Description: "Monthly electricity payment",
		Amount: 120.75, Category: "Utilities", UserID: "2", UserName: "Jane Smith",
		Date: "2023-06-10", Time: "10:00", CreatedAt: "2023-06-10T10:00:00",
	},
	{
		ID: "5", Title: "New Headphones", Description: "Sony WH-1000XM4",
		Amount: 89.99, Category: "Shopping", UserID: "1", UserName: "John Doe",
		Date: "2023-06-08", Time: "16:20", CreatedAt: "2023-06-08T16:20:00",
	},
}

// SampleUsers returns a copy of the bootstrap users.
func SampleUsers() []models.User {
	return append([]models.User(nil), sampleUsers...)
}

// SampleExpenses returns a copy of the bootstrap expenses.
func SampleExpenses() []models.Expense {
	return append([]models.Expense(nil), sampleExpenses...)
}
