// This package is internal and should not be imported directly.
// It provides:
//   - Router: the routing table from job type to handler
//   - Register: typed registration against a payload variant
package handler
