// 配置热重载实现。
//
// 基于修改时间轮询监听配置文件，变更时重新走完整加载链
// （默认值 → 文件 → 环境变量 → 验证），验证失败保留旧配置。
package config

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ReloadCallback 配置成功重载后调用
type ReloadCallback func(oldConfig, newConfig *Config)

// Reloader 监听配置文件并在变更时重新加载
type Reloader struct {
	mu sync.RWMutex

	// 加载链
	loader *Loader

	// 当前生效的配置
	current *Config

	// 轮询状态
	pollInterval time.Duration
	lastModTime  time.Time
	running      bool
	stopChan     chan struct{}

	// 回调
	callbacks []ReloadCallback

	// 记录器
	logger *zap.Logger
}

// ReloaderOption 配置 Reloader 的可选项
type ReloaderOption func(*Reloader)

// WithPollInterval 设置文件轮询间隔
func WithPollInterval(d time.Duration) ReloaderOption {
	return func(r *Reloader) {
		r.pollInterval = d
	}
}

// WithReloaderLogger 设置记录器
func WithReloaderLogger(logger *zap.Logger) ReloaderOption {
	return func(r *Reloader) {
		r.logger = logger
	}
}

// NewReloader 创建热重载器。initial 为当前生效配置，loader 必须携带
// 配置文件路径。
func NewReloader(loader *Loader, initial *Config, opts ...ReloaderOption) (*Reloader, error) {
	if loader == nil || loader.configPath == "" {
		return nil, fmt.Errorf("reloader requires a loader with a config path")
	}

	r := &Reloader{
		loader:       loader,
		current:      initial,
		pollInterval: 1 * time.Second,
		stopChan:     make(chan struct{}),
		callbacks:    make([]ReloadCallback, 0),
		logger:       zap.NewNop(),
	}

	for _, opt := range opts {
		opt(r)
	}

	if info, err := os.Stat(loader.configPath); err == nil {
		r.lastModTime = info.ModTime()
	}

	return r, nil
}

// OnReload 注册重载回调
func (r *Reloader) OnReload(callback ReloadCallback) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.callbacks = append(r.callbacks, callback)
}

// Current 返回当前生效的配置
func (r *Reloader) Current() *Config {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.current
}

// Start 启动轮询
func (r *Reloader) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return fmt.Errorf("reloader already running")
	}
	r.running = true
	r.mu.Unlock()

	go r.pollLoop(ctx)

	r.logger.Info("config reloader started",
		zap.String("path", r.loader.configPath),
		zap.Duration("poll_interval", r.pollInterval))

	return nil
}

// Stop 停止轮询
func (r *Reloader) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.running {
		return
	}
	close(r.stopChan)
	r.running = false

	r.logger.Info("config reloader stopped")
}

// IsRunning 报告重载器是否在运行
func (r *Reloader) IsRunning() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.running
}

// pollLoop 按修改时间轮询配置文件
func (r *Reloader) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-r.stopChan:
			return
		case <-ticker.C:
			r.checkAndReload()
		}
	}
}

// checkAndReload 检测文件变更并重新加载
func (r *Reloader) checkAndReload() {
	info, err := os.Stat(r.loader.configPath)
	if err != nil {
		// 文件暂不可见，等待下个周期
		return
	}

	r.mu.RLock()
	changed := info.ModTime().After(r.lastModTime)
	r.mu.RUnlock()
	if !changed {
		return
	}

	if err := r.Reload(); err != nil {
		r.logger.Error("config reload failed, keeping previous config", zap.Error(err))
	}

	r.mu.Lock()
	r.lastModTime = info.ModTime()
	r.mu.Unlock()
}

// Reload 立即重新加载配置。验证失败时当前配置保持不变。
func (r *Reloader) Reload() error {
	newConfig, err := r.loader.Load()
	if err != nil {
		return err
	}
	if err := newConfig.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	oldConfig := r.current
	r.current = newConfig
	callbacks := make([]ReloadCallback, len(r.callbacks))
	copy(callbacks, r.callbacks)
	r.mu.Unlock()

	for _, cb := range callbacks {
		cb(oldConfig, newConfig)
	}

	r.logger.Info("config reloaded", zap.String("path", r.loader.configPath))
	return nil
}
