/*
Package orders generates counterbalanced experimental orders from two
equal-length value sets using a Latin-square-derived design.

For sets of size N the generator emits N*N orders: every cyclic rotation of
the condition set paired with every cyclic rotation of the object set. Within
each object-rotation block, each condition value occupies each sequence
position exactly once across the N rows, controlling for order effects.
*/
package orders
