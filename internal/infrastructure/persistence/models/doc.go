// Package models contains GORM persistence models for the tables this service
// owns. Fiscal document tables are not modelled here: their shape varies per
// deployment and they are accessed through the schema package instead.
package models
