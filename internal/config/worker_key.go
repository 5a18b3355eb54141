package config

type WorkerKeyStruct struct {
	PersistBookmarksQueue string
}

var WorkerKey = &WorkerKeyStruct{
	PersistBookmarksQueue: "persist_bookmarks_queue",
}
