// Package compiler translates Arduino-style sketches into programs an engine
// can run against a capability surface.
//
// Pipeline: source → Preprocess → Lex → Validate → Parse → bind → Program.
// Program.Bind yields an Instance whose Setup and Loop walk the tree.
package compiler
