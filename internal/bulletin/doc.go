// Package bulletin binds the UncensoredBulletin (UB) contract and its
// companion Editor's Token Contract (ETC).
//
// Two capability views are offered. A Reader performs read-only calls and is
// safe for concurrent use. A Session pairs a Reader with a signing account
// and adds the state-changing calls. Client mirrors the classic wallet-holding
// client object: a Reader plus an optional, replaceable account.
package bulletin
