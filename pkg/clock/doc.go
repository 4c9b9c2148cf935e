// Package clock provides the master media clock a Player owns. Readers on the
// audio worker and device threads see a consistent time without taking locks.
package clock
