package models

// OperationType represents the kind of write the reconciler issues
type OperationType string

const (
	OperationInsert OperationType = "insert"
	OperationUpdate OperationType = "update"
	OperationDelete OperationType = "delete"
)

// Operation is a single planned write against the persisted store
type Operation struct {
	Type     OperationType `json:"operation_type"`
	ObjectID string        `json:"object_id"`
	Current  *Device       `json:"current,omitempty"`  // Stripped desired state (nil for delete)
	Previous *Device       `json:"previous,omitempty"` // Persisted state (nil for insert)
}
