// Package kintone is a client for the kintone REST API.
//
// A Client owns one middleware pipeline composed at build time. Endpoint
// builders in the record, file, space and app subpackages validate their
// parameters, describe the call as a *middleware.Request and send it
// through Client.Do.
//
//	client, err := kintone.NewBuilder("https://example.cybozu.com",
//		middleware.APITokens(os.Getenv("KINTONE_API_TOKEN"))).
//		WithLogger(logger.New("info", false)).
//		Build()
//	if err != nil {
//		return err
//	}
//	resp, err := record.GetRecord(12, 1).Send(ctx, client)
//
// Reads are retried on transient failures. Writes are retried only after
// RetrySafe or IdempotencyKey is set on the builder.
package kintone
