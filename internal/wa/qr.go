package wa

import (
	"go.mau.fi/whatsmeow"
	"go.uber.org/zap"
)

// watchQR turns pairing channel items into connection updates until pairing
// succeeds, times out, or fails.
func (c *Client) watchQR(qrChan <-chan whatsmeow.QRChannelItem) {
	for item := range qrChan {
		evt, done := qrItemEvent(item)
		if evt != nil {
			c.emit(evt)
		}
		if done {
			if item.Error != nil {
				c.logger.Warn("pairing failed", zap.String("event", item.Event), zap.Error(item.Error))
			}
			return
		}
	}
}

// qrItemEvent maps one pairing channel item. done reports that the channel is finished.
func qrItemEvent(item whatsmeow.QRChannelItem) (evt Event, done bool) {
	switch item.Event {
	case "code":
		return ConnectionUpdate{QR: item.Code}, false
	case "success":
		return nil, true
	case "timeout":
		return closed(ReasonQRTimeout, ""), true
	case "err-client-outdated":
		return closed(ReasonOutdated, ""), true
	case "error":
		detail := ""
		if item.Error != nil {
			detail = item.Error.Error()
		}
		return closed(ReasonUnknown, detail), true
	default:
		return closed(ReasonUnknown, item.Event), true
	}
}
