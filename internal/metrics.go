package internal

import "expvar"

var (
	requestsTotal        = expvar.NewMap("pokebridge_requests_total")
	unauthenticatedTotal = expvar.NewInt("pokebridge_unauthenticated_total")
	parseErrorsTotal     = expvar.NewInt("pokebridge_parse_errors_total")
	dedupedTotal         = expvar.NewInt("pokebridge_deduped_total")
	deliveredTotal       = expvar.NewInt("pokebridge_delivered_total")
	retriesTotal         = expvar.NewInt("pokebridge_retries_total")
	rejectedTotal        = expvar.NewInt("pokebridge_rejected_total")
	deadLetterTotal      = expvar.NewInt("pokebridge_dead_letters_total")
)

func IncRequest(eventType string) {
	requestsTotal.Add(eventType, 1)
}

func IncUnauthenticated() {
	unauthenticatedTotal.Add(1)
}

func IncParseError() {
	parseErrorsTotal.Add(1)
}

func IncDeduped() {
	dedupedTotal.Add(1)
}

func IncDelivered() {
	deliveredTotal.Add(1)
}

func IncRetry() {
	retriesTotal.Add(1)
}

func IncRejected() {
	rejectedTotal.Add(1)
}

func IncDeadLetter() {
	deadLetterTotal.Add(1)
}
