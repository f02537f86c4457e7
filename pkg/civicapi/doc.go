// Package civicapi is the Go SDK for the civic reports backend.
//
// Every backend response is wrapped in an envelope:
//
//	{"success": true, "data": ...}
//	{"success": false, "message": "category is inactive"}
//
// The client unwraps it and returns ErrRejected for success=false, so a
// caller never sees a partial payload.
//
// # Creating a report
//
//	c, _ := civicapi.New("https://api.civic.example.org",
//	    civicapi.WithBearerToken(sessionToken),
//	)
//	rep, err := c.CreateReport(ctx, civicapi.CreateReportRequest{
//	    ClientRef:   uuid.NewString(),
//	    Title:       "Hueco profundo en la Calle 45",
//	    Description: "Hueco de medio metro frente al paradero",
//	    CategoryID:  1,
//	    Latitude:    4.6287,
//	    Longitude:   -74.0659,
//	})
//
// # Pacing
//
// WithRateLimit makes the client wait before each request so background
// sync jobs cannot flood the backend after a long offline period:
//
//	c, _ := civicapi.New(url, civicapi.WithRateLimit(5, 10))
package civicapi
