// Package bruteforce provides a simple point index that answers range and
// nearest queries by scanning every stored point. It is the correctness
// baseline for the tree index and supports a compact binary format for
// persistence.
package bruteforce
