// Package testing provides a conformance suite for store.IStore implementations.
//
// RunIStoreTests checks the contract every backend has to honour: single field
// writes never create keys, HSetIfUnset never overwrites, counters are atomic
// under concurrent callers, HGetMulti keeps the order and length of its input and
// failures carry the documented return codes.
//
// Example usage:
//
//	storetesting.RunIStoreTests(t, "MyStore", func(t *testing.T) store.IStore {
//		return NewMyStore()
//	})
package testing
