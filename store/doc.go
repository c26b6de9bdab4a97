// Package store defines the backend-neutral sparse storage contract.
//
// A row is a sparse property map addressed by a (keyspace, column family,
// key) triple. Every physical adapter implements [Client] with identical
// observable behavior, no matter how different the native query and update
// semantics of the backing store are.
//
// # Partial updates
//
// Insert is an upsert with partial-update semantics: properties absent from
// the value map are left untouched, and a property carrying the
// [RemoveProperty] sentinel is deleted rather than set to null:
//
//	client.Insert(ctx, ks, fam, key, store.Properties{
//	    "title":    "renamed",
//	    "obsolete": store.RemoveProperty,
//	}, false)
//
// # Queries
//
// Find takes a [Query] predicate map. A scalar value means equality, an
// array value means the row's array-valued property must contain all of the
// listed values, and a key with the "orset" prefix carries a disjunction
// group built with [OrSet]. The reserved keys [QuerySort] and
// [QueryStatementSet] request a sort order and the count-only fast path.
//
// # Hierarchy
//
// Backends have no native tree support. Rows that carry the [PathField]
// property are stored with a [ParentHashField] property equal to
// [RowHash] of their parent path, and ListChildren is a Find on that hash.
// RowHash is therefore part of the contract: every adapter must compute it
// identically, since it is used as a join value across processes.
package store
