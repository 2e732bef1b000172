// Package core defines the shared domain types of the couchpilot agent
// engine: role-tagged conversation content, tool call and result shapes,
// task execution state, progress events and the error taxonomy used across
// all components. It has no dependencies on concrete providers or
// integrations so every other package can import it freely.
package core
