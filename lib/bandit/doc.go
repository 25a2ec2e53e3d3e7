// Package bandit implements arms and bandits on top of a store.IStore.
//
// An Arm is a record with a fixed set of typed fields declared by a Schema. Its fields
// live in one hash of the store and are never cached, every Get, Set and Increment is a
// single store call. Increments are atomic store primitives, concurrent increments from
// any number of processes are never lost.
//
// A Bandit groups arms under a prefix. The member ids are a set stored at <prefix>, the
// arm records at <prefix>:<id>. GetFieldFromArms reads one field of many arms with one
// batched store call.
//
// Usage Example:
//
//	schema := bandit.MustSchema("ucb", bandit.Int("pulls", 0), bandit.Float("reward", 0))
//
//	b, _ := bandit.New(conn, "experiment:42", schema)
//	arm, _ := b.AddArm(ctx, "blue", nil)
//	arm.Increment(ctx, "pulls", 1)
//	arm.IncrementFloat(ctx, "reward", 0.7)
//
//	rewards, _ := b.GetFieldFromArms(ctx, []string{"blue", "red"}, "reward")
//
// Errors:
//
//   - UnknownFieldError (errors.Is ErrUnknownField): the field is not declared, no store call was made.
//   - NotFoundError (errors.Is ErrNotFound): the arm is not a member or its record was deleted.
//   - ErrStoreUnavailable: any other store failure. The *store.Error is available through errors.As.
//
// Nothing is retried by this package, retries belong to the store connection.
//
// Transfer:
//
// Arms and bandits hold a live connection and can not be serialized. Ref returns a
// detached reference (store url, key or prefix, schema) that JSON encodes, Attach
// rebinds it to a connection and Dial opens the connection from the url first.
package bandit
