// Package types holds the shared data model of the weft engine: the unified
// error taxonomy and token accounting used across the llm, structured, and
// workflow packages.
//
// Keeping these in a leaf package avoids import cycles between the adapter
// layer and the workflow engine.
package types
