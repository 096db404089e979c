package globals

var BackendsReloadChan = make(chan bool)
var MetricsReloadChan = make(chan bool)
