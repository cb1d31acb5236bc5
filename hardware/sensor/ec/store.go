package ec

import (
	"io"
	"path/filepath"
	"sync"
	"time"

	"github.com/juju/errors"
	"github.com/temoto/extremofile"
	"github.com/temoto/hydro/log2"
)

const storeTag = "ec-calibration"

type storage interface {
	Read() ([]byte, error)
	io.Writer
}

// Store binds Calibration to crash safe file (main + backup with checksum).
type Store struct {
	sync.Mutex
	log     *log2.Log
	dir     string
	storage storage
}

func NewStore(root string, log *log2.Log) (*Store, error) {
	if root == "" {
		return nil, errors.NotValidf("ec calibration store root=empty")
	}
	dir := filepath.Join(root, storeTag)
	return &Store{
		log: log,
		dir: dir,
		storage: extremofile.New(extremofile.Config{
			Dir:      dir,
			DirPerm:  0755,
			FilePerm: 0644,
		}),
	}, nil
}

func (self *Store) Dir() string { return self.dir }

// Load returns stored calibration. Missing store is created with defaults.
// Unreadable or corrupt store is an error, caller must treat it as fatal.
func (self *Store) Load() (Calibration, error) {
	self.Lock()
	defer self.Unlock()
	tbegin := time.Now()
	b, err := self.storage.Read()
	self.log.Debugf("ec store read dir=%s duration=%v", self.dir, time.Since(tbegin))
	if extremofile.IsCritical(err) || (b == nil && err != nil) {
		return Calibration{}, errors.Annotatef(err, "ec calibration load dir=%s", self.dir)
	}
	if b == nil {
		cal := DefaultCalibration()
		self.log.Infof("ec calibration not found, creating defaults dir=%s", self.dir)
		return cal, self.store(cal)
	}
	if err != nil {
		self.log.Errorf("ec calibration ignore non-critical storage err=%v", err)
	}
	var cal Calibration
	if err = cal.UnmarshalBinary(b); err != nil {
		return Calibration{}, errors.Annotatef(err, "ec calibration corrupt dir=%s", self.dir)
	}
	return cal, nil
}

func (self *Store) Store(cal Calibration) error {
	self.Lock()
	defer self.Unlock()
	return self.store(cal)
}

func (self *Store) store(cal Calibration) error {
	b, err := cal.MarshalBinary()
	if err == nil {
		tbegin := time.Now()
		_, err = self.storage.Write(b)
		self.log.Debugf("ec store write duration=%v", time.Since(tbegin))
	}
	return errors.Annotatef(err, "ec calibration store dir=%s", self.dir)
}

// Reset writes default coefficients.
func (self *Store) Reset() (Calibration, error) {
	cal := DefaultCalibration()
	return cal, self.Store(cal)
}
