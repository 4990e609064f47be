package inference

import (
	"context"
	"fmt"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

var envOnce sync.Once
var envErr error

// initEnvironment onnxruntime 环境在进程内只初始化一次
func initEnvironment(libraryPath string) error {
	envOnce.Do(func() {
		if libraryPath != "" {
			ort.SetSharedLibraryPath(libraryPath)
		}
		envErr = ort.InitializeEnvironment()
	})
	return envErr
}

// ONNXScorer 基于 onnxruntime 的打分器
// 模型在创建时加载一次，会话只读，每次调用使用独立的输入输出张量。
type ONNXScorer struct {
	session    *ort.DynamicAdvancedSession
	outputSize int64
}

// ONNXOptions 模型加载参数
type ONNXOptions struct {
	ModelPath   string
	LibraryPath string
	InputName   string
	OutputName  string
}

// NewONNXScorer 加载模型
// 输入输出名称为空时从模型元数据中读取第一个输入与输出。
func NewONNXScorer(opts ONNXOptions) (*ONNXScorer, error) {
	if err := initEnvironment(opts.LibraryPath); err != nil {
		return nil, fmt.Errorf("初始化onnxruntime失败: %w", err)
	}

	inputName, outputName := opts.InputName, opts.OutputName
	if inputName == "" || outputName == "" {
		inputs, outputs, err := ort.GetInputOutputInfo(opts.ModelPath)
		if err != nil {
			return nil, fmt.Errorf("读取模型输入输出信息失败: %w", err)
		}
		if len(inputs) == 0 || len(outputs) == 0 {
			return nil, fmt.Errorf("模型缺少输入或输出")
		}
		if inputName == "" {
			inputName = inputs[0].Name
		}
		if outputName == "" {
			outputName = outputs[0].Name
		}
	}

	session, err := ort.NewDynamicAdvancedSession(opts.ModelPath, []string{inputName}, []string{outputName}, nil)
	if err != nil {
		return nil, fmt.Errorf("加载模型失败: %w", err)
	}

	return &ONNXScorer{session: session, outputSize: 2}, nil
}

type scoreResult struct {
	scores []float32
	err    error
}

// Score 执行一次前向计算
// 计算本身不可中断，ctx 取消时立即返回，张量在计算结束后释放。
func (s *ONNXScorer) Score(ctx context.Context, input []float32, shape []int64) ([]float32, error) {
	done := make(chan scoreResult, 1)

	go func() {
		scores, err := s.run(input, shape)
		done <- scoreResult{scores: scores, err: err}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-done:
		return r.scores, r.err
	}
}

func (s *ONNXScorer) run(input []float32, shape []int64) ([]float32, error) {
	inputTensor, err := ort.NewTensor(ort.NewShape(shape...), input)
	if err != nil {
		return nil, fmt.Errorf("创建输入张量失败: %w", err)
	}
	defer inputTensor.Destroy()

	outputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(1, s.outputSize))
	if err != nil {
		return nil, fmt.Errorf("创建输出张量失败: %w", err)
	}
	defer outputTensor.Destroy()

	if err := s.session.Run([]ort.Value{inputTensor}, []ort.Value{outputTensor}); err != nil {
		return nil, fmt.Errorf("模型执行失败: %w", err)
	}

	data := outputTensor.GetData()
	scores := make([]float32, len(data))
	copy(scores, data)
	return scores, nil
}

// Close 释放会话
func (s *ONNXScorer) Close() error {
	return s.session.Destroy()
}
