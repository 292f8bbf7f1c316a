package project

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"
	"sync"

	"github.com/LdDl/mor-go/logger"
	"github.com/LdDl/mor-go/mor"
	"github.com/LdDl/mor-go/tracking"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
)

const (
	// MorrisDir is the hidden directory holding containers and configuration
	MorrisDir = ".morris"
	// TemplateFileName is the container holding zones shared by every video
	TemplateFileName = ".morproj"
	// ConfigFileName is the YAML project configuration
	ConfigFileName = "project.yaml"
	// ContainerExt is the extension of per-video containers
	ContainerExt = ".mor"
)

// VideoExtensions are file extensions (lower case) recognised as videos
var VideoExtensions = []string{".mp4", ".mov", ".avi", ".mkv", ".wmv"}

// ErrNoProject is returned when the project directory doesn't exist
var ErrNoProject = errors.New("project directory does not exist")

// ProgressFunc is called after each container is processed
type ProgressFunc func(done, total int, path string)

// VideoData is what LoadSmart found for a video
type VideoData struct {
	Zones  []mor.Zone
	Frames *mor.FrameSequence
	Marked bool
	// FromTemplate is true when zones came from the project template
	FromTemplate bool
}

// Storage manages containers of one project directory
type Storage struct {
	root   string
	dir    string
	config Config
	log    *logrus.Entry
}

// Open opens project rooted at root, creating .morris when needed
func Open(root string) (*Storage, error) {
	info, err := os.Stat(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrap(ErrNoProject, root)
		}
		return nil, errors.Wrapf(err, "can't stat %s", root)
	}
	if !info.IsDir() {
		return nil, errors.Wrapf(ErrNoProject, "%s is not a directory", root)
	}
	dir := filepath.Join(root, MorrisDir)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, errors.Wrapf(err, "can't create %s", dir)
	}
	storage := &Storage{
		root: root,
		dir:  dir,
		log:  logger.Log.WithField("scope", "project storage"),
	}
	storage.config, err = LoadConfig(storage.ConfigFilePath(), filepath.Base(filepath.Clean(root)))
	if err != nil {
		return nil, err
	}
	return storage, nil
}

// OpenForContainer opens the project owning a container kept in its .morris directory.
// Containers stored anywhere else give ErrNoProject.
func OpenForContainer(containerPath string) (*Storage, error) {
	abs, err := filepath.Abs(containerPath)
	if err != nil {
		return nil, errors.Wrapf(err, "can't resolve %s", containerPath)
	}
	dir := filepath.Dir(abs)
	if filepath.Base(dir) != MorrisDir {
		return nil, errors.Wrapf(ErrNoProject, "%s is not inside %s", containerPath, MorrisDir)
	}
	return Open(filepath.Dir(dir))
}

// Create makes project directory with configuration named name
func Create(root, name string) (*Storage, error) {
	if err := os.MkdirAll(filepath.Join(root, MorrisDir), 0755); err != nil {
		return nil, errors.Wrapf(err, "can't create project %s", root)
	}
	if err := SaveConfig(filepath.Join(root, MorrisDir, ConfigFileName), DefaultConfig(name)); err != nil {
		return nil, err
	}
	return Open(root)
}

// Root returns project directory
func (storage *Storage) Root() string {
	return storage.root
}

// Config returns project configuration
func (storage *Storage) Config() Config {
	return storage.config
}

// SaveConfig validates and stores configuration
func (storage *Storage) SaveConfig(cfg Config) error {
	if err := SaveConfig(storage.ConfigFilePath(), cfg); err != nil {
		return err
	}
	storage.config = cfg
	return nil
}

// ConfigFilePath returns path of project.yaml
func (storage *Storage) ConfigFilePath() string {
	return filepath.Join(storage.dir, ConfigFileName)
}

// VideoFilePath returns container path for video given by name or path; only its stem is used
func (storage *Storage) VideoFilePath(video string) string {
	base := filepath.Base(video)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	return filepath.Join(storage.dir, stem+ContainerExt)
}

// TemplateFilePath returns path of the project template container
func (storage *Storage) TemplateFilePath() string {
	return filepath.Join(storage.dir, TemplateFileName)
}

func (storage *Storage) newContainer(path string) (*mor.Container, error) {
	container := mor.NewContainer(path)
	coordType, err := storage.config.Coord()
	if err != nil {
		return nil, err
	}
	if err := container.SetCoordType(coordType); err != nil {
		return nil, err
	}
	return container, nil
}

// SaveVideo writes container of the video from scratch
func (storage *Storage) SaveVideo(video string, zones []mor.Zone, frames *mor.FrameSequence, marked bool) error {
	container, err := storage.newContainer(storage.VideoFilePath(video))
	if err != nil {
		return err
	}
	container.SetZones(zones)
	if frames != nil {
		container.ReplaceFrames(frames)
	}
	container.SetMarked(marked)
	if err := container.Save(); err != nil {
		return errors.Wrapf(err, "can't save video %s", video)
	}
	storage.log.WithFields(logrus.Fields{
		"video":  video,
		"zones":  len(zones),
		"marked": marked,
	}).Debug("Video saved")
	return nil
}

// SaveTracking is SaveVideo for tracking results kept as frame -> box map
func (storage *Storage) SaveTracking(video string, zones []mor.Zone, frames map[int]mor.BBox, marked bool) error {
	seq := mor.NewFrameSequence()
	tracking.RunsFromMap(seq, frames)
	return storage.SaveVideo(video, zones, seq, marked)
}

// SaveTemplate writes zones shared by all videos. Accumulated statistics are not stored.
func (storage *Storage) SaveTemplate(zones []mor.Zone) error {
	container, err := storage.newContainer(storage.TemplateFilePath())
	if err != nil {
		return err
	}
	container.SetZones(resetStats(zones))
	container.SetMarked(false)
	if err := container.Save(); err != nil {
		return errors.Wrap(err, "can't save project template")
	}
	return nil
}

// LoadTemplate returns template zones. Missing template gives no zones.
func (storage *Storage) LoadTemplate() ([]mor.Zone, error) {
	container := mor.NewContainer(storage.TemplateFilePath())
	if err := container.Load(); err != nil {
		return nil, errors.Wrap(err, "can't load project template")
	}
	return container.Zones(), nil
}

// LoadSmart returns data of the video container when it exists,
// template zones with no frames when only the template exists and empty data otherwise.
func (storage *Storage) LoadSmart(video string) (VideoData, error) {
	path := storage.VideoFilePath(video)
	if exists(path) {
		container := mor.NewContainer(path)
		if err := container.Load(); err != nil {
			return VideoData{Frames: mor.NewFrameSequence()}, errors.Wrapf(err, "can't load video %s", video)
		}
		return VideoData{
			Zones:  container.Zones(),
			Frames: container.Sequence(),
			Marked: container.Marked(),
		}, nil
	}
	if exists(storage.TemplateFilePath()) {
		zones, err := storage.LoadTemplate()
		if err != nil {
			return VideoData{Frames: mor.NewFrameSequence()}, err
		}
		return VideoData{Zones: zones, Frames: mor.NewFrameSequence(), FromTemplate: true}, nil
	}
	return VideoData{Frames: mor.NewFrameSequence()}, nil
}

// MarkedStatus reads "fully annotated" flag without decoding frames.
// Unreadable containers count as not marked.
func (storage *Storage) MarkedStatus(video string) bool {
	path := storage.VideoFilePath(video)
	marked, err := mor.NewContainer(path).LoadMetaOnly()
	if err != nil {
		storage.log.WithError(err).WithField("video", video).Warn("Can't read marked status")
		return false
	}
	return marked
}

// SetMarked updates "fully annotated" flag keeping the rest of the container
func (storage *Storage) SetMarked(video string, marked bool) error {
	container := mor.NewContainer(storage.VideoFilePath(video))
	if err := container.Load(); err != nil {
		return errors.Wrapf(err, "can't load video %s", video)
	}
	container.SetMarked(marked)
	if err := container.Save(); err != nil {
		return errors.Wrapf(err, "can't save video %s", video)
	}
	return nil
}

// Containers returns paths of per-video containers, sorted
func (storage *Storage) Containers() ([]string, error) {
	paths, err := filepath.Glob(filepath.Join(storage.dir, "*"+ContainerExt))
	if err != nil {
		return nil, errors.Wrap(err, "can't list containers")
	}
	slices.Sort(paths)
	return paths, nil
}

// PropagateTemplate saves zones as the template and replaces zones of every video container.
// Frames and flags of the containers are kept, zone statistics start from zero.
// A container that fails doesn't stop the others; all failures are returned together.
func (storage *Storage) PropagateTemplate(zones []mor.Zone, progress ProgressFunc) error {
	if err := storage.SaveTemplate(zones); err != nil {
		return err
	}
	paths, err := storage.Containers()
	if err != nil {
		return err
	}
	fresh := resetStats(zones)
	var result error
	for i, path := range paths {
		if err := replaceZones(path, fresh); err != nil {
			storage.log.WithError(err).WithField("file", path).Warn("Can't propagate template")
			result = multierr.Append(result, err)
		}
		if progress != nil {
			progress(i+1, len(paths), path)
		}
	}
	storage.log.WithFields(logrus.Fields{
		"files":  len(paths),
		"failed": len(multierr.Errors(result)),
	}).Info("Template propagated")
	return result
}

func replaceZones(path string, zones []mor.Zone) error {
	container := mor.NewContainer(path)
	if err := container.Load(); err != nil {
		return errors.Wrapf(err, "can't load %s", path)
	}
	container.SetZones(zones)
	if err := container.Save(); err != nil {
		return errors.Wrapf(err, "can't save %s", path)
	}
	return nil
}

// VideosStatus reads marked flags of videos in parallel
func (storage *Storage) VideosStatus(ctx context.Context, videos []string) (map[string]bool, error) {
	var mu sync.Mutex
	statuses := make(map[string]bool, len(videos))
	group, ctx := errgroup.WithContext(ctx)
	group.SetLimit(runtime.NumCPU())
	for _, video := range videos {
		group.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			marked := storage.MarkedStatus(video)
			mu.Lock()
			statuses[video] = marked
			mu.Unlock()
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}
	return statuses, nil
}

// ListVideos returns names of video files in the project directory, sorted
func (storage *Storage) ListVideos() ([]string, error) {
	entries, err := os.ReadDir(storage.root)
	if err != nil {
		return nil, errors.Wrapf(err, "can't read %s", storage.root)
	}
	videos := make([]string, 0, len(entries))
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		if slices.Contains(VideoExtensions, strings.ToLower(filepath.Ext(entry.Name()))) {
			videos = append(videos, entry.Name())
		}
	}
	slices.Sort(videos)
	return videos, nil
}

func resetStats(zones []mor.Zone) []mor.Zone {
	fresh := slices.Clone(zones)
	for i := range fresh {
		fresh[i].Time = 0
		fresh[i].Distance = 0
	}
	return fresh
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
