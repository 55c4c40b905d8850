package main

// User-visible strings. pyfmt templates take named arguments from the
// command handlers.
var lang = struct {
	Help      string
	Start     string
	AdminHelp string
	Replies   langReplies
	Usage     langUsage
}{
	Help: `Я показываю расписание занятий физфака.

/schedule <группа> [день] — расписание группы, например /schedule 06-451 среда
/schedule — расписание твоей сохранённой группы
/setgroup <группа> — запомнить группу
/mygroup — показать сохранённую группу
/week — текущая учебная неделя

Когда на сайте появляется новый файл расписания, я пришлю уведомление.`,
	AdminHelp: `/broadcast <текст> — сообщение всем подписчикам
/stats — статистика кэша и подписчиков`,
	Start: `Привет! Я бот с расписанием физфака.

Сохрани свою группу командой /setgroup <группа>, после этого /schedule будет работать без аргументов.`,
	Replies: langReplies{
		MissingPermissions: "Эта команда доступна только администраторам.",
		GroupSaved:         "Запомнил группу {group}. Теперь /schedule работает без аргументов.",
		NoStoredGroup:      "Укажи группу: /schedule <группа> [день] — или сначала сохрани её через /setgroup.",
		StoredGroup:        "Твоя группа: {group}",
		UnknownDay:         "Не понял день недели. Используй, например: понедельник, вт, ср, пятница.",
		NotFound:           "Не нашёл расписание для группы '{group}'. Проверь код группы или попробуй позже.",
		Unavailable:        "⚠️ Не удалось получить список файлов расписания. Попробуй позже.",
		EmptyListing:       "На сайте пока нет файлов расписания.",
		NoCurrentWeek:      "Сейчас не идёт учебный семестр.",
		BroadcastDone:      "Отправлено {sent} подписчикам, ошибок: {failed}.",
	},
	Usage: langUsage{
		SetGroup:  "Использование: /setgroup <группа>, например /setgroup 06-451",
		Broadcast: "Использование: /broadcast <текст>",
	},
}

type langReplies struct {
	MissingPermissions string
	GroupSaved         string
	NoStoredGroup      string
	StoredGroup        string
	UnknownDay         string
	NotFound           string
	Unavailable        string
	EmptyListing       string
	NoCurrentWeek      string
	BroadcastDone      string
}

type langUsage struct {
	SetGroup  string
	Broadcast string
}
