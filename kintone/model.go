package kintone

// EntityType identifies a user, group or organization.
type EntityType string

const (
	EntityUser         EntityType = "USER"
	EntityGroup        EntityType = "GROUP"
	EntityOrganization EntityType = "ORGANIZATION"
)

// Entity references a user, group or organization by code.
type Entity struct {
	Type EntityType `json:"type" validate:"oneof=USER GROUP ORGANIZATION"`
	Code string     `json:"code" validate:"required"`
}

// User is a kintone user as returned in records and comments.
type User struct {
	Name string `json:"name"`
	Code string `json:"code"`
}

// Order is a sort direction.
type Order string

const (
	OrderAsc  Order = "asc"
	OrderDesc Order = "desc"
)
