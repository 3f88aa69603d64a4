package recycle

import "github.com/pkg/errors"

// PowerOfTwoError is the error returned from CheckPow2 or other methods if the number being tested is not a power of two
var PowerOfTwoError error = errors.New("number must be a power of two")

// OutOfMemoryError is the error returned when the recycler's own bookkeeping storage cannot grow
// to track an additional span
var OutOfMemoryError error = errors.New("span bookkeeping storage cannot grow")
