package config

import (
	"context"
	"strings"

	"bitbucket.org/eggnest/eggs_backend/appctx"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// RoomGuardPlugin enforces room isolation by automatically scoping
// queries/updates/deletes to the request's room_id when the model has a room_id column.
//
// NOTE: this does NOT apply to Raw SQL queries. Those must include room_id
// manually. Internal paths without a room in context (the cleanup sweep,
// cross-room listings) are untouched.
type RoomGuardPlugin struct{}

func NewRoomGuardPlugin() *RoomGuardPlugin { return &RoomGuardPlugin{} }

func (p *RoomGuardPlugin) Name() string { return "room_guard" }

func (p *RoomGuardPlugin) Initialize(db *gorm.DB) error {
	// Query
	if err := db.Callback().Query().Before("gorm:query").Register("room_guard:query", roomGuardCallback); err != nil {
		return err
	}
	// Row (First/Take)
	if err := db.Callback().Row().Before("gorm:row").Register("room_guard:row", roomGuardCallback); err != nil {
		return err
	}
	// Update
	if err := db.Callback().Update().Before("gorm:update").Register("room_guard:update", roomGuardCallback); err != nil {
		return err
	}
	// Delete
	if err := db.Callback().Delete().Before("gorm:delete").Register("room_guard:delete", roomGuardCallback); err != nil {
		return err
	}
	return nil
}

func roomGuardCallback(db *gorm.DB) {
	if db == nil || db.Statement == nil {
		return
	}
	ctx := db.Statement.Context
	if ctx == nil {
		return
	}
	roomID := roomIdFromContext(ctx)
	if roomID == "" {
		return
	}

	// Only apply if the current model/table includes a room_id column.
	if db.Statement.Schema == nil {
		return
	}
	hasRoomID := false
	for _, f := range db.Statement.Schema.Fields {
		if strings.EqualFold(f.DBName, "room_id") {
			hasRoomID = true
			break
		}
	}
	if !hasRoomID {
		return
	}

	// Don't duplicate an explicit room filter.
	if whereHasRoomID(db.Statement.Clauses["WHERE"]) {
		return
	}

	db.Statement.AddClause(clause.Where{
		Exprs: []clause.Expression{
			clause.Eq{
				Column: clause.Column{Table: db.Statement.Table, Name: "room_id"},
				Value:  roomID,
			},
		},
	})
}

func roomIdFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(appctx.ContextKeyRoomId).(string); ok && v != "" {
		return v
	}
	return ""
}

func whereHasRoomID(c clause.Clause) bool {
	if c.Expression == nil {
		return false
	}
	w, ok := c.Expression.(clause.Where)
	if !ok {
		return false
	}
	for _, e := range w.Exprs {
		if exprHasRoomID(e) {
			return true
		}
	}
	return false
}

func exprHasRoomID(e clause.Expression) bool {
	switch v := e.(type) {
	case clause.Eq:
		return colIsRoomID(v.Column)
	case clause.Neq:
		return colIsRoomID(v.Column)
	case clause.Gt:
		return colIsRoomID(v.Column)
	case clause.Gte:
		return colIsRoomID(v.Column)
	case clause.Lt:
		return colIsRoomID(v.Column)
	case clause.Lte:
		return colIsRoomID(v.Column)
	case clause.IN:
		return colIsRoomID(v.Column)
	case clause.AndConditions:
		for _, x := range v.Exprs {
			if exprHasRoomID(x) {
				return true
			}
		}
		return false
	case clause.OrConditions:
		for _, x := range v.Exprs {
			if exprHasRoomID(x) {
				return true
			}
		}
		return false
	case clause.Expr:
		// Best-effort for raw expressions.
		return strings.Contains(strings.ToLower(v.SQL), "room_id")
	default:
		return false
	}
}

func colIsRoomID(col any) bool {
	switch c := col.(type) {
	case string:
		return strings.EqualFold(c, "room_id")
	case clause.Column:
		return strings.EqualFold(c.Name, "room_id")
	default:
		return false
	}
}
