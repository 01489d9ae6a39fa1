package config

type WorkerKeyStruct struct {
	PersistEventsQueue    string
	PersistAnswersQueue   string
	PersistResponsesQueue string
}

var WorkerKey = &WorkerKeyStruct{
	PersistEventsQueue:    "persist_events_queue",
	PersistAnswersQueue:   "persist_answers_queue",
	PersistResponsesQueue: "persist_responses_queue",
}
