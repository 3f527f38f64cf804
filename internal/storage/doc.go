// Package storage provides the guestbook store behind the demo service.
//
// Messages are kept in an embedded Badger database, either on disk or in
// memory. Keys are ULIDs, so iteration order is insertion order.
package storage
