package kms

//go:generate mockgen -source $GOFILE -destination device_mocks.go -package $GOPACKAGE

// Device is the display controller's transactional API.
type Device interface {
	// PropertyID resolves a named property on an object. It fails with
	// ErrPropertyNotFound when the object does not expose the property on this
	// hardware.
	PropertyID(obj Object, name string) (uint32, error)
	// Commit applies every property of the request in one transaction.
	Commit(req *Request, flags CommitFlags) error
}
