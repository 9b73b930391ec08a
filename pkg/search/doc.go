// Package search defines the request shape for metadata searches: trees of
// property conditions and classification conditions combined with
// ALL/ANY/NONE match criteria.
//
// Every type here is an immutable value. Trees are built through the New*
// constructors or PropertiesBuilder, compared with Equal, and travel as JSON.
// A PropertyCondition is either a leaf test of one property or a nested
// sub-tree, never both:
//
//	props, err := search.NewPropertiesBuilder(search.MatchAll).
//		Where("name", search.OperatorEQ, "Alice").
//		Where("age", search.OperatorGT, 30).
//		Build()
//
// Evaluation against entities lives with the repositories that consume these
// trees.
package search
