// Package models contains the domain types shared across services:
// tenants, connections, plans, indexed items, and the tool contract.
package models

import "go.mongodb.org/mongo-driver/v2/bson"

// Every persisted entity is keyed by a 12-byte ObjectID, lexicographically
// sortable by creation time. Each entity gets its own defined wrapper so a
// PlanID cannot be passed where a ClientID is expected; Hex, IsZero, and the
// JSON hex form are promoted from the embedded ObjectID.
type (
	ClientID     struct{ bson.ObjectID }
	ProjectID    struct{ bson.ObjectID }
	ConnectionID struct{ bson.ObjectID }
	PlanID       struct{ bson.ObjectID }
	StepID       struct{ bson.ObjectID }
	ContextID    struct{ bson.ObjectID }
	TaskID       struct{ bson.ObjectID }
	ItemID       struct{ bson.ObjectID }
)

type objectID interface {
	~struct{ bson.ObjectID }
}

func newID[T objectID]() T {
	return T(struct{ bson.ObjectID }{bson.NewObjectID()})
}

func parseID[T objectID](hex string) (T, error) {
	oid, err := bson.ObjectIDFromHex(hex)
	if err != nil {
		var zero T
		return zero, err
	}
	return T(struct{ bson.ObjectID }{oid}), nil
}

// Constructors generate fresh ids.
func NewClientID() ClientID         { return newID[ClientID]() }
func NewProjectID() ProjectID       { return newID[ProjectID]() }
func NewConnectionID() ConnectionID { return newID[ConnectionID]() }
func NewPlanID() PlanID             { return newID[PlanID]() }
func NewStepID() StepID             { return newID[StepID]() }
func NewContextID() ContextID       { return newID[ContextID]() }
func NewTaskID() TaskID             { return newID[TaskID]() }
func NewItemID() ItemID             { return newID[ItemID]() }

// Parsers turn 24-character hex strings back into typed ids.
func ParseClientID(hex string) (ClientID, error)         { return parseID[ClientID](hex) }
func ParseProjectID(hex string) (ProjectID, error)       { return parseID[ProjectID](hex) }
func ParseConnectionID(hex string) (ConnectionID, error) { return parseID[ConnectionID](hex) }
func ParsePlanID(hex string) (PlanID, error)             { return parseID[PlanID](hex) }
func ParseContextID(hex string) (ContextID, error)       { return parseID[ContextID](hex) }

// The driver's ObjectID codec matches the exact bson.ObjectID type, so every
// wrapper forwards BSON value encoding to it explicitly; without these the
// wrappers would persist as 12-element byte arrays instead of ObjectIDs.
func marshalID(oid bson.ObjectID) (byte, []byte, error) {
	t, data, err := bson.MarshalValue(oid)
	return byte(t), data, err
}

func unmarshalID(oid *bson.ObjectID, t byte, data []byte) error {
	return bson.UnmarshalValue(bson.Type(t), data, oid)
}

func (id ClientID) MarshalBSONValue() (byte, []byte, error)     { return marshalID(id.ObjectID) }
func (id ProjectID) MarshalBSONValue() (byte, []byte, error)    { return marshalID(id.ObjectID) }
func (id ConnectionID) MarshalBSONValue() (byte, []byte, error) { return marshalID(id.ObjectID) }
func (id PlanID) MarshalBSONValue() (byte, []byte, error)       { return marshalID(id.ObjectID) }
func (id StepID) MarshalBSONValue() (byte, []byte, error)       { return marshalID(id.ObjectID) }
func (id ContextID) MarshalBSONValue() (byte, []byte, error)    { return marshalID(id.ObjectID) }
func (id TaskID) MarshalBSONValue() (byte, []byte, error)       { return marshalID(id.ObjectID) }
func (id ItemID) MarshalBSONValue() (byte, []byte, error)       { return marshalID(id.ObjectID) }

func (id *ClientID) UnmarshalBSONValue(t byte, data []byte) error {
	return unmarshalID(&id.ObjectID, t, data)
}

func (id *ProjectID) UnmarshalBSONValue(t byte, data []byte) error {
	return unmarshalID(&id.ObjectID, t, data)
}

func (id *ConnectionID) UnmarshalBSONValue(t byte, data []byte) error {
	return unmarshalID(&id.ObjectID, t, data)
}

func (id *PlanID) UnmarshalBSONValue(t byte, data []byte) error {
	return unmarshalID(&id.ObjectID, t, data)
}

func (id *StepID) UnmarshalBSONValue(t byte, data []byte) error {
	return unmarshalID(&id.ObjectID, t, data)
}

func (id *ContextID) UnmarshalBSONValue(t byte, data []byte) error {
	return unmarshalID(&id.ObjectID, t, data)
}

func (id *TaskID) UnmarshalBSONValue(t byte, data []byte) error {
	return unmarshalID(&id.ObjectID, t, data)
}

func (id *ItemID) UnmarshalBSONValue(t byte, data []byte) error {
	return unmarshalID(&id.ObjectID, t, data)
}
