/*
包 metrics 提供基于 Prometheus 的全链路指标采集能力，覆盖
HTTP、问答流水线、LLM、联网搜索、知识库检索与会话存档六大维度。

# 概述

本包通过 Collector 统一注册和记录 Prometheus 指标，使用 promauto
自动注册机制，避免手动管理 Registry。所有指标按 namespace 隔离，
支持多维度 label 分组，便于 Grafana 等工具进行可视化与告警。

# 核心类型

  - Collector：指标收集器，持有 Counter、Histogram 等 Prometheus
    向量指标，按业务域分组管理，并实现 pipeline.Observer 接口以
    直接挂载到问答流水线上。

# 主要能力

  - HTTP 指标：请求总数与请求耗时，按 method/path/status 分组，
    状态码归类为 2xx/3xx/4xx/5xx。
  - 流水线指标：单步耗时、闸门裁决计数与质量分分布、答案计数、
    置信度分布、端到端耗时，按 step/category 分组。
  - LLM 指标：请求总数与请求耗时，按 model 分组。
  - 联网搜索指标：搜索总数与耗时，按 depth 分组。
  - 检索指标：检索总数与耗时，按 mode 分组。
  - 会话存档指标：存档操作计数，按 operation/status 分组。
*/
package metrics
