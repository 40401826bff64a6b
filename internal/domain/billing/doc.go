// Package billing provides domain models for per-minute usage metering and
// monthly billing reconciliation.
//
// This package implements the usage metering bounded context, which is responsible for:
//   - Recording agent call usage as an append-only ledger of UsageRecord rows
//   - Aggregating unbilled usage per user up to a billing period end
//   - Describing the outcome of one reconciled user-period as a BillingRecord
//   - Mirroring the payment processor's subscription state per user
//
// Key Aggregates:
//   - UsageRecord: one metered unit of agent call time, billed exactly once
//   - BillingRecord: local receipt of usage reported to the payment processor
//   - Subscription: local mirror of the user's Stripe subscription
//
// Value Objects:
//   - UsageSummary: totals over a set of unbilled records
//   - BillingPeriod: the closed time window a reconciliation run covers
//   - Plan: the catalogue entry a subscription resolves to
package billing
