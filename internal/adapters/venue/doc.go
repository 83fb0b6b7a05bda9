// Package venue provides conversion venues for the ledger's Execute step.
//
// FixedRate converts at a constant rate from its own reserves and rescales
// between the two assets' decimals. HTTP asks a remote quoting service for
// the output amount and settles against local reserves the same way.
package venue
