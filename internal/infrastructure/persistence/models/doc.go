// Package models contains GORM-specific persistence models that map to database tables.
// These models are separate from domain entities to keep the domain layer pure and free
// from ORM concerns.
//
// Key Principles:
// 1. Domain entities are free of GORM tags and infrastructure concerns
// 2. Persistence models contain all GORM annotations and table mappings
// 3. Mappers (ToDomain / FromDomain) convert between the two
// 4. Repositories use persistence models for database operations
//
// Structure:
// - base.go: BaseModel shared by all uuid-keyed tables
// - usage.go: usage_records and billing_records
// - subscription.go: the per-user Stripe subscription mirror
// - agent.go: voice agents
package models
