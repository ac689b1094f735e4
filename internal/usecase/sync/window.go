package sync

// WindowClock — логические часы скользящего окна. Вместо календарного
// времени индекс свежести хранит номер слота, который сдвигается на единицу
// за каждый проход синхронизации и заворачивается по модулю размера окна.
type WindowClock struct {
	Size int
	Slot int64
}

// Advance возвращает часы, сдвинутые на один слот вперёд.
func (w WindowClock) Advance() WindowClock {
	return WindowClock{Size: w.Size, Slot: (w.Slot + 1) % int64(w.Size)}
}

// DueSlot возвращает слот, в котором завершённый челлендж будет вытеснен
// из индекса. Короткие челленджи вытесняются раньше, длинные задерживаются
// дольше, чтобы их контент оставался рекомендуемым сопоставимую долю окна.
func (w WindowClock) DueSlot(duration int) int64 {
	var lag int
	switch {
	case duration <= 14:
		lag = w.Size / 5
	case duration <= 35:
		lag = w.Size / 4
	case duration <= 49:
		lag = w.Size / 3
	default:
		lag = w.Size / 2
	}
	return (w.Slot + int64(lag)) % int64(w.Size)
}
