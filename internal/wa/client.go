package wa

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/matheus3301/wahub/internal/logging"
	"go.mau.fi/whatsmeow"
	wastore "go.mau.fi/whatsmeow/store"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	"go.uber.org/zap"

	_ "github.com/mattn/go-sqlite3"
)

const eventBuffer = 256

// SetDeviceName sets the name shown on the phone's linked devices list.
// It applies to every client created afterwards.
func SetDeviceName(name string) {
	wastore.SetOSInfo(name, [3]uint32{0, 1, 0})
}

// Identity is the linked account as known by the local credential store.
type Identity struct {
	JID          string
	PushName     string
	BusinessName string
}

// Client wraps one whatsmeow client with its own credential database and
// delivers translated events in emission order.
type Client struct {
	id        string
	client    *whatsmeow.Client
	container *sqlstore.Container
	logger    *zap.Logger

	events chan Event
	ctx    context.Context
	cancel context.CancelFunc
	once   sync.Once
}

// NewClient opens the credential database at dbPath and prepares a client.
// The library's own auto-reconnect is disabled; callers own that policy.
func NewClient(ctx context.Context, id, dbPath string, logger *zap.Logger) (*Client, error) {
	logger = logger.With(zap.String("instance", id))
	waLogger := logging.WhatsmeowLogger(logger, "whatsmeow")

	container, err := sqlstore.New(ctx, "sqlite3",
		fmt.Sprintf("file:%s?_foreign_keys=on&_busy_timeout=5000", dbPath),
		waLogger.Sub("Database"),
	)
	if err != nil {
		return nil, fmt.Errorf("create credential store: %w", err)
	}

	deviceStore, err := container.GetFirstDevice(ctx)
	if err != nil {
		_ = container.Close()
		return nil, fmt.Errorf("get device store: %w", err)
	}

	client := whatsmeow.NewClient(deviceStore, waLogger.Sub("Client"))
	client.EnableAutoReconnect = false

	cctx, cancel := context.WithCancel(context.Background())
	c := &Client{
		id:        id,
		client:    client,
		container: container,
		logger:    logger,
		events:    make(chan Event, eventBuffer),
		ctx:       cctx,
		cancel:    cancel,
	}
	client.AddEventHandler(c.handle)
	return c, nil
}

// Events returns the ordered event stream. It is never closed; stop reading after Close.
func (c *Client) Events() <-chan Event {
	return c.events
}

// Start connects. When no credentials are stored, the pairing flow runs and
// challenges are delivered as ConnectionUpdate events.
func (c *Client) Start(ctx context.Context) error {
	if c.client.Store.ID == nil {
		qrChan, err := c.client.GetQRChannel(c.ctx)
		if err != nil {
			return fmt.Errorf("get QR channel: %w", err)
		}
		go c.watchQR(qrChan)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	c.logger.Info("connecting to WhatsApp")
	if err := c.client.Connect(); err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	return nil
}

// Close disconnects and releases the credential database. Credentials stay on disk.
func (c *Client) Close() {
	c.once.Do(func() {
		c.logger.Info("closing WhatsApp session")
		c.cancel()
		c.client.Disconnect()
		if err := c.container.Close(); err != nil {
			c.logger.Warn("close credential store", zap.Error(err))
		}
	})
}

// Logout deauthenticates the linked device on the server side.
func (c *Client) Logout(ctx context.Context) error {
	return c.client.Logout(ctx)
}

// Self returns the linked account, or false if the device is not paired yet.
func (c *Client) Self() (Identity, bool) {
	id := c.client.Store.ID
	if id == nil {
		return Identity{}, false
	}
	return Identity{
		JID:          id.ToNonAD().String(),
		PushName:     c.client.Store.PushName,
		BusinessName: c.client.Store.BusinessName,
	}, true
}

// ProfilePictureURL returns the full-size avatar URL, or "" if none is visible.
func (c *Client) ProfilePictureURL(ctx context.Context, jid string) (string, error) {
	target, err := types.ParseJID(jid)
	if err != nil {
		return "", fmt.Errorf("parse JID: %w", err)
	}
	info, err := c.client.GetProfilePictureInfo(ctx, target, &whatsmeow.GetProfilePictureParams{})
	if errors.Is(err, whatsmeow.ErrProfilePictureNotSet) || errors.Is(err, whatsmeow.ErrProfilePictureUnauthorized) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get profile picture: %w", err)
	}
	if info == nil {
		return "", nil
	}
	return info.URL, nil
}

// DownloadMedia fetches and decrypts the media attached to a message.
func (c *Client) DownloadMedia(ctx context.Context, msg Message) ([]byte, error) {
	raw := msg.Raw
	var target whatsmeow.DownloadableMessage
	switch msg.Media {
	case MediaImage:
		target = raw.GetImageMessage()
	case MediaVideo:
		target = raw.GetVideoMessage()
	case MediaAudio:
		target = raw.GetAudioMessage()
	case MediaDocument:
		target = raw.GetDocumentMessage()
	case MediaSticker:
		target = raw.GetStickerMessage()
	}
	if raw == nil || target == nil {
		return nil, fmt.Errorf("message %s has no downloadable media", msg.MsgID)
	}
	return c.client.Download(ctx, target)
}

func (c *Client) handle(raw any) {
	for _, evt := range Translate(raw) {
		c.emit(evt)
	}
}

// emit blocks while the buffer is full so per-session ordering holds, and gives up once closed.
func (c *Client) emit(evt Event) {
	select {
	case c.events <- evt:
	case <-c.ctx.Done():
	}
}
