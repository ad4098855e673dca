// Пакет model — доменные модели File Catalog.
// Advertisement — маппинг таблицы file_entries.
package model

import (
	"net"
	"strconv"
	"time"
)

// OwnerAddress — сетевой адрес, на котором владелец принимает соединения для файла.
type OwnerAddress struct {
	Host string
	Port int
}

// String возвращает адрес в формате host:port (IPv6 в квадратных скобках).
func (a OwnerAddress) String() string {
	return net.JoinHostPort(a.Host, strconv.Itoa(a.Port))
}

// Advertisement — объявление о том, что файл доступен у пира по адресу.
// Тройка (FileName, Owner.Host, Owner.Port) уникальна.
type Advertisement struct {
	// ID — суррогатный ключ, назначается БД
	ID int64
	// FileName — имя файла (не уникально само по себе)
	FileName string
	// PeerID — непрозрачный идентификатор владельца, служит токеном владения
	PeerID string
	// Owner — адрес владельца
	Owner OwnerAddress
	// LastRenewed — время последнего продления (list или heartbeat)
	LastRenewed time.Time
}

// FileInfo — результат обращения к каталогу. Закрытый набор вариантов:
// FileRef (результат поиска, без адреса) и FileOwner (с адресом владельца).
type FileInfo interface {
	FileID() int64
	Name() string
	fileInfo()
}

// FileRef — результат поиска: только идентификатор и имя.
// Адрес владельца раскрывается только через FileOwner.
type FileRef struct {
	ID       int64
	FileName string
}

// FileID возвращает идентификатор объявления.
func (r FileRef) FileID() int64 { return r.ID }

// Name возвращает имя файла.
func (r FileRef) Name() string { return r.FileName }

func (FileRef) fileInfo() {}

// FileOwner — полная информация для установления соединения с владельцем.
type FileOwner struct {
	ID       int64
	FileName string
	Owner    OwnerAddress
}

// FileID возвращает идентификатор объявления.
func (o FileOwner) FileID() int64 { return o.ID }

// Name возвращает имя файла.
func (o FileOwner) Name() string { return o.FileName }

func (FileOwner) fileInfo() {}

// Ref возвращает представление объявления для результатов поиска.
func (a *Advertisement) Ref() FileRef {
	return FileRef{ID: a.ID, FileName: a.FileName}
}

// OwnerInfo возвращает представление объявления для resolve.
func (a *Advertisement) OwnerInfo() FileOwner {
	return FileOwner{ID: a.ID, FileName: a.FileName, Owner: a.Owner}
}
