package hikevents

import "encoding/base64"

const alertStreamPath = "/Event/notification/alertStream"

// SubscriptionRequest builds the HTTP request that opens the alert stream.
// The camera keeps the connection open and pushes XML alerts on it.
func SubscriptionRequest(username, password string) []byte {
	credentials := base64.StdEncoding.EncodeToString([]byte(username + ":" + password))
	return []byte("GET " + alertStreamPath + " HTTP/1.1\r\n" +
		"Authorization: Basic " + credentials + "\r\n" +
		"Connection: keep-alive\r\n" +
		"\r\n")
}
