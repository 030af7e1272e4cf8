// Package wealthmind provides the domain model of a brokerage-style trading
// account service: accounts holding a cash balance and share positions,
// immutable order records, and market quotes carrying a derived risk level.
//
// The package itself is stateless. The services that operate on the model
// live in sub packages:
//   - ledger: durable storage of accounts, holdings and orders, with an
//     atomic per-account update primitive.
//   - market: a quote cache in front of an external provider, with TTL,
//     a staleness ceiling and per-symbol fetch coalescing.
//   - auth: registration, login and bearer token validation.
//   - orders: validation and atomic execution of buy and sell orders.
//   - portfolio: valuation and profit/loss views of an account.
//   - server: the JSON HTTP surface.
//
// This package serves as the foundational logic for the `wm` command-line
// tool and its `serve` command.
package wealthmind
