// Package model holds the civic report domain types shared by the cache,
// category directory, validation engine and report repository.
package model
