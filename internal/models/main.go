// Package models defines the core data structures shared by the client and
// the document store server: users, expenses, pending operations and sessions.
package models

import (
	"encoding/json"
	"time"
)

// UnknownUserName is stored as the userName of an expense whose userId does
// not resolve to a known user.
const UnknownUserName = "Unknown User"

// User is a person expenses can be assigned to.
type User struct {
	// ID is assigned at creation and never reused.
	ID string `json:"id"`
	// Name is the display name.
	Name string `json:"name"`
	// Email is the contact address.
	Email string `json:"email"`
	// Phone is optional.
	Phone string `json:"phone,omitempty"`
}

// UserInput holds the fields of a user that is about to be created.
type UserInput struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone,omitempty"`
}

// Expense is a single recorded expense.
type Expense struct {
	// ID is assigned at creation.
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Amount      float64 `json:"amount"`
	// Category is an open set of labels ("Food & Dining", "Utilities", ...).
	Category string `json:"category"`
	UserID   string `json:"userId"`
	// UserName is a copy of the user's name taken when the expense was
	// written. It is not kept in step with later renames.
	UserName string `json:"userName"`
	// Date is a calendar date, YYYY-MM-DD.
	Date string `json:"date"`
	// Time is HH:MM, 24h.
	Time string `json:"time"`
	// CreatedAt is an ISO-8601 timestamp set once at creation.
	CreatedAt string `json:"createdAt"`
}

// ExpenseInput holds the fields of an expense that is about to be created.
type ExpenseInput struct {
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Amount      float64 `json:"amount"`
	Category    string  `json:"category"`
	UserID      string  `json:"userId"`
	Date        string  `json:"date"`
	Time        string  `json:"time"`
}

// OperationType names a local mutation recorded in the outbox.
type OperationType string

const (
	OpAddUser       OperationType = "addUser"
	OpUpdateUser    OperationType = "updateUser"
	OpDeleteUser    OperationType = "deleteUser"
	OpAddExpense    OperationType = "addExpense"
	OpUpdateExpense OperationType = "updateExpense"
	OpDeleteExpense OperationType = "deleteExpense"
)

// Collection returns the collection the operation applies to.
func (t OperationType) Collection() Collection {
	switch t {
	case OpAddUser, OpUpdateUser, OpDeleteUser:
		return CollectionUsers
	default:
		return CollectionExpenses
	}
}

// IsDelete reports whether the operation removes a record.
func (t OperationType) IsDelete() bool {
	return t == OpDeleteUser || t == OpDeleteExpense
}

// PendingOperation is an outbox entry: a local mutation the remote store has
// not acknowledged yet.
type PendingOperation struct {
	// ID identifies the entry for acknowledgement.
	ID string `json:"id"`
	// Type is the kind of mutation.
	Type OperationType `json:"type"`
	// Data is the full affected record, or {"id": ...} for deletes.
	Data json.RawMessage `json:"data"`
	// Timestamp is the enqueue time in Unix milliseconds.
	Timestamp int64 `json:"timestamp"`
	// Attempts counts failed delivery rounds.
	Attempts int `json:"attempts,omitempty"`
}

// RecordID extracts the "id" field of the operation payload.
func (op PendingOperation) RecordID() (string, error) {
	var ref struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(op.Data, &ref); err != nil {
		return "", err
	}
	return ref.ID, nil
}

// SyncStatus is the state of the synchronization engine as shown to users.
type SyncStatus string

const (
	SyncIdle    SyncStatus = "idle"
	SyncSyncing SyncStatus = "syncing"
	SyncSynced  SyncStatus = "synced"
	SyncError   SyncStatus = "error"
)

// Collection is the name of a remote document collection.
type Collection string

const (
	CollectionUsers    Collection = "users"
	CollectionExpenses Collection = "expenses"
)

// Valid reports whether c is one of the known collections.
func (c Collection) Valid() bool {
	return c == CollectionUsers || c == CollectionExpenses
}

// Document is a stored remote document.
type Document struct {
	Collection Collection
	ID         string
	// Data is the JSON object body of the document.
	Data      json.RawMessage
	CreatedAt time.Time
	UpdatedAt time.Time
	Deleted   bool
}

// Timestamp is the wire form of a server-assigned instant before it is
// normalized to an ISO string.
type Timestamp struct {
	Seconds int64 `json:"seconds"`
	Nanos   int32 `json:"nanos"`
}

// NewTimestamp converts t to its wire form.
func NewTimestamp(t time.Time) Timestamp {
	return Timestamp{Seconds: t.Unix(), Nanos: int32(t.Nanosecond())}
}

// Time converts the timestamp back to a time.Time in UTC.
func (ts Timestamp) Time() time.Time {
	return time.Unix(ts.Seconds, int64(ts.Nanos)).UTC()
}

// ISO formats the timestamp the way createdAt values are stored.
func (ts Timestamp) ISO() string {
	return FormatISO(ts.Time())
}

// FormatISO formats t as an RFC 3339 UTC string with millisecond precision.
func FormatISO(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z07:00")
}

// Account is a login identity of the document store.
type Account struct {
	Email        string
	PasswordHash []byte
	CreatedAt    time.Time
}

// Session is returned by login and register.
type Session struct {
	Token     string    `json:"token"`
	Email     string    `json:"email"`
	ExpiresAt time.Time `json:"expiresAt"`
}
